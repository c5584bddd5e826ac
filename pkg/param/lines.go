package param

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineLen is the longest line the text formats accept, terminator included.
const maxLineLen = 4096

const bom = "\ufeff"

// ScanLines calls fn with every meaningful line of r, trimmed of surrounding
// whitespace. Blank lines and lines starting with '#' are skipped, as is a
// byte-order mark on the first line. A line that does not fit maxLineLen is
// an error, unless it is the unterminated last line of a short file.
func ScanLines(r io.Reader, fn func(lineno int, line string) error) error {
	br := bufio.NewReaderSize(r, maxLineLen)
	for lineno := 1; ; lineno++ {
		raw, err := br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			return fmt.Errorf("line %d: %w", lineno, ErrLineTooLong)
		}
		if err != nil && err != io.EOF {
			return err
		}
		if len(raw) == 0 && err == io.EOF {
			return nil
		}

		line := string(raw)
		if lineno == 1 {
			line = strings.TrimPrefix(line, bom)
		}
		line = strings.TrimSpace(line)
		if line != "" && line[0] != '#' {
			if ferr := fn(lineno, line); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
	}
}
