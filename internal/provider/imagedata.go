package provider

import "regexp"

// Inline images travel as data URIs: data:<mime>;base64,<payload>.
var imageDataURIPattern = regexp.MustCompile(`^data:([^;]+);base64,(.+)$`)

// ParseImageDataURI splits an inline image URI into its mime type and base64
// payload. Normalizers drop image parts whose URI does not match the scheme
// rather than failing the request.
func ParseImageDataURI(uri string) (mimeType, data string, ok bool) {
	match := imageDataURIPattern.FindStringSubmatch(uri)
	if match == nil {
		return "", "", false
	}
	return match[1], match[2], true
}
