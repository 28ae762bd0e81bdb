// Package mediatypes holds the extension tables shared by the scanner, the
// byte-range server and the subtitle lookup. It has no dependencies so any
// package can import it.
//
// Extensions are lowercase and include the leading dot:
//
//	ext := strings.ToLower(filepath.Ext(name))
//	if mediatypes.IsVideo(ext) {
//	    w.Header().Set("Content-Type", mediatypes.GetMimeType(ext))
//	}
package mediatypes
