// Package textutil holds byte-level text helpers shared by the source loaders.
package textutil

import "bytes"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StripBOM drops a leading UTF-8 byte order mark. Editors on Windows add one
// to manifests and rule files, and neither the JSON decoder nor the rule
// header check accept it.
func StripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, utf8BOM)
}
