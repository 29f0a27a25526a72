package unit

import (
	"fmt"
	"strings"
)

// SymbolPrefix starts every entry symbol.
const SymbolPrefix = "nnc_"

// KernelID joins the four parts of a kernel id.
func KernelID(name, version, method, token string) string {
	return strings.Join([]string{name, version, method, token}, ":")
}

// ParseKernelID splits id into model name, model version, method and build
// token. Every part must be non-empty.
func ParseKernelID(id string) (name, version, method, token string, err error) {
	parts := strings.Split(id, ":")
	if len(parts) != 4 {
		return "", "", "", "", fmt.Errorf("kernel id %q: want name:version:method:token", id)
	}
	for i, p := range parts {
		if p == "" {
			return "", "", "", "", fmt.Errorf("kernel id %q: part %d is empty", id, i)
		}
	}
	return parts[0], parts[1], parts[2], parts[3], nil
}

// EntrySymbol maps a kernel id to the native symbol of its entry point.
// Bytes outside [A-Za-z0-9_] become underscores.
func EntrySymbol(kernelID string) string {
	b := []byte(SymbolPrefix + kernelID)
	for i := len(SymbolPrefix); i < len(b); i++ {
		c := b[i]
		if c != '_' && !('a' <= c && c <= 'z') && !('A' <= c && c <= 'Z') && !('0' <= c && c <= '9') {
			b[i] = '_'
		}
	}
	return string(b)
}
