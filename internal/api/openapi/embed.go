// Пакет openapi — OpenAPI контракт HTTP API QR Share.
package openapi

import _ "embed"

//go:embed openapi.yaml
var spec []byte

// Spec возвращает содержимое openapi.yaml.
func Spec() []byte {
	return spec
}
