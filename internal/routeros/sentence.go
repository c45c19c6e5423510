package routeros

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// The reply stream is framed into sentences: a marker line (!re, !done,
// !trap) followed by zero or more attribute lines. A full reply ends at the
// !done marker.

// SentenceKind tags one reply sentence.
type SentenceKind int

const (
	SentenceRecord SentenceKind = iota // !re
	SentenceDone                       // !done
	SentenceTrap                       // !trap
)

// Sentence is one framed unit of the reply stream.
type Sentence struct {
	Kind  SentenceKind
	Attrs map[string]string
}

// Reply is one complete device reply: the data records plus the first trap
// seen, if any.
type Reply struct {
	Records []map[string]string
	Trap    *Sentence
}

type sentenceReader struct {
	r *bufio.Reader
}

func newSentenceReader(r io.Reader) *sentenceReader {
	return &sentenceReader{r: bufio.NewReader(r)}
}

// readReply consumes sentences until the terminating !done marker.
// Attribute lines accept both the =key=value command form and the plain
// key=value reply form; lines outside any sentence are dropped, matching
// device behavior across firmware revisions.
func (sr *sentenceReader) readReply() (*Reply, error) {
	reply := &Reply{}
	var current *Sentence

	for {
		line, err := sr.r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: read reply: %v", ErrTransport, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		switch {
		case line == "!re":
			current = &Sentence{Kind: SentenceRecord, Attrs: map[string]string{}}
			reply.Records = append(reply.Records, current.Attrs)

		case line == "!trap":
			current = &Sentence{Kind: SentenceTrap, Attrs: map[string]string{}}
			if reply.Trap == nil {
				reply.Trap = current
			}

		case line == "!done":
			return reply, nil

		case strings.HasPrefix(line, "!"):
			return nil, fmt.Errorf("%w: unknown sentence marker %q", ErrProtocol, line)

		default:
			key, value, ok := splitAttr(line)
			if !ok {
				return nil, fmt.Errorf("%w: malformed attribute line %q", ErrProtocol, line)
			}
			if current != nil {
				current.Attrs[key] = value
			}
		}
	}
}

func splitAttr(line string) (key, value string, ok bool) {
	line = strings.TrimPrefix(line, "=")
	idx := strings.Index(line, "=")
	if idx <= 0 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

// Word is one outbound attribute, written as =key=value. Order matters on
// the wire, so commands carry slices rather than maps.
type Word struct {
	Key   string
	Value string
}

// writeCommand sends the command path line followed by its attribute lines.
// There is no terminator beyond the line boundaries.
func writeCommand(w io.Writer, path string, words []Word) error {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('\n')
	for _, wd := range words {
		b.WriteByte('=')
		b.WriteString(wd.Key)
		b.WriteByte('=')
		b.WriteString(wd.Value)
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("%w: write command: %v", ErrTransport, err)
	}
	return nil
}
