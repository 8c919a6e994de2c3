package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

// SharedFileProvider reads a named profile from an INI-format shared
// credentials file, e.g. $HOME/.aws/credentials.
type SharedFileProvider struct {
	// Filename is the path to the credentials file. When empty, the
	// AWS_SHARED_CREDENTIALS_FILE environment variable is consulted, then
	// the conventional location under the user's home directory.
	Filename string

	// Profile is the section to read. When empty, the AWS_PROFILE
	// environment variable is consulted, then "default".
	Profile string
}

// Retrieve loads the profile section from the credentials file.
func (p *SharedFileProvider) Retrieve(_ context.Context) (Credentials, error) {
	filename, err := p.resolveFilename()
	if err != nil {
		return Credentials{}, err
	}
	profile := p.resolveProfile()

	file, err := ini.Load(filename)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load shared credentials file %s: %w", filename, err)
	}

	section, err := file.GetSection(profile)
	if err != nil {
		return Credentials{}, fmt.Errorf("profile %q not found in %s: %w",
			profile, filename, apierrors.ErrCredentialsUnavailable)
	}

	id := section.Key("aws_access_key_id").String()
	secret := section.Key("aws_secret_access_key").String()
	if id == "" || secret == "" {
		return Credentials{}, fmt.Errorf("profile %q in %s is missing a key pair: %w",
			profile, filename, apierrors.ErrCredentialsUnavailable)
	}

	return Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    section.Key("aws_session_token").String(),
		Source:          "shared_file",
	}, nil
}

// Location reports the credentials file path this provider reads, after
// applying the environment and home-directory fallbacks. Used to point a
// FileWatcher at the right file.
func (p *SharedFileProvider) Location() (string, error) {
	return p.resolveFilename()
}

func (p *SharedFileProvider) resolveFilename() (string, error) {
	if p.Filename != "" {
		return p.Filename, nil
	}
	if env := os.Getenv("AWS_SHARED_CREDENTIALS_FILE"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("user home directory not found: %w", apierrors.ErrCredentialsUnavailable)
	}
	return filepath.Join(home, ".aws", "credentials"), nil
}

func (p *SharedFileProvider) resolveProfile() string {
	if p.Profile != "" {
		return p.Profile
	}
	if env := os.Getenv("AWS_PROFILE"); env != "" {
		return env
	}
	return "default"
}

// FileWatcher invalidates a cache when the shared credentials file changes
// on disk, so a rotated key is picked up without waiting for expiry.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchFile watches path and calls onChange for every write, create, or
// rename event touching it. Watching the parent directory rather than the
// file itself survives the rename-and-replace pattern editors and
// credential helpers use.
func WatchFile(path string, onChange func(), log zerolog.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	fw := &FileWatcher{watcher: watcher, done: make(chan struct{})}
	base := filepath.Base(path)

	go func() {
		defer close(fw.done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					log.Debug().Str("file", event.Name).Msg("credentials file changed, invalidating cache")
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("credentials file watcher error")
			}
		}
	}()

	return fw, nil
}

// Close stops watching and waits for the event loop to exit.
func (w *FileWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
