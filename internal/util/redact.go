package util

// RedactPhone keeps the first six and last three characters of a phone number
// so log lines stay correlatable without exposing the full number.
func RedactPhone(phone string) string {
	r := []rune(phone)
	if len(r) <= 9 {
		return "***"
	}
	return string(r[:6]) + "..." + string(r[len(r)-3:])
}

// MaskSecret shows the first and last four characters of a secret.
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return "NOT SET"
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "..." + secret[len(secret)-4:]
	}
}
