package logentries

// AppendFrame appends the wire frame for one record to dst and returns the
// extended slice. The frame is token, text and a trailing '\n'; every '\n'
// before the trailing one becomes 0x00 so the collector sees exactly one
// line per record.
//
// A 0x00 already present in text is sent as is and will read back as an
// escaped newline.
func AppendFrame(dst []byte, token, text string) []byte {
	start := len(dst)
	dst = append(dst, token...)
	dst = append(dst, text...)
	for i := start; i < len(dst); i++ {
		if dst[i] == '\n' {
			dst[i] = 0
		}
	}
	return append(dst, '\n')
}
