package sigv4

import (
	"encoding/base64"
)

// SMTP password derivation walks the same HMAC chain as request signing but
// with fixed date and message inputs, producing the version-prefixed
// password paired with an access key id for the email service's SMTP
// interface. It is a pure transform of the secret key, kept here, away from
// HTTP orchestration, so it can be tested against fixed vectors.

const (
	smtpDate    = "11111111"
	smtpService = "ses"
	smtpMessage = "SendRawEmail"
	smtpVersion = 0x04
)

// SMTPPassword derives the SMTP password for the given secret key and
// region. The corresponding SMTP username is the access key id unchanged.
func SMTPPassword(secretAccessKey, region string) string {
	signature := hmacSHA256(
		deriveKey(secretAccessKey, smtpDate, region, smtpService),
		[]byte(smtpMessage))

	versioned := make([]byte, 0, len(signature)+1)
	versioned = append(versioned, smtpVersion)
	versioned = append(versioned, signature...)
	return base64.StdEncoding.EncodeToString(versioned)
}
