package rag

import (
	"regexp"
	"strings"
)

var (
	thinkBlock  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	thinkPrefix = regexp.MustCompile(`(?s)^.*?</think>`)
	thinkTag    = regexp.MustCompile(`(?i)</?think>`)
	answerBlock = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)
	blankLines  = regexp.MustCompile(`\n\s*\n`)
)

// CleanAnswer turns raw model output into the answer shown to users. It
// drops reasoning blocks (including a leading one whose opening tag is
// missing), keeps only the <answer> section when there is one and collapses
// runs of blank lines.
func CleanAnswer(raw string) string {
	s := thinkBlock.ReplaceAllString(raw, "")
	s = thinkPrefix.ReplaceAllString(s, "")
	s = thinkTag.ReplaceAllString(s, "")
	if m := answerBlock.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var streamTags = []string{"<think>", "</think>", "<answer>", "</answer>"}

// thinkFilter removes reasoning blocks and answer tags from a stream of
// fragments. Tags may be split across fragments, so a possible tag prefix at
// the end of the buffer is held back until the next write.
type thinkFilter struct {
	buf     string
	inThink bool
}

// Write adds a fragment and returns the text that can be shown now.
func (f *thinkFilter) Write(fragment string) string {
	f.buf += fragment
	var out strings.Builder

	for {
		idx, tag := firstTag(f.buf)
		if idx < 0 {
			break
		}
		if !f.inThink {
			out.WriteString(f.buf[:idx])
		}
		f.buf = f.buf[idx+len(tag):]
		switch tag {
		case "<think>":
			f.inThink = true
		case "</think>":
			f.inThink = false
		}
	}

	keep := partialTagSuffix(f.buf)
	if !f.inThink {
		out.WriteString(f.buf[:len(f.buf)-keep])
	}
	f.buf = f.buf[len(f.buf)-keep:]
	return out.String()
}

// Flush returns whatever is still buffered once the stream has ended.
func (f *thinkFilter) Flush() string {
	rest := f.buf
	f.buf = ""
	if f.inThink {
		return ""
	}
	return rest
}

func firstTag(s string) (int, string) {
	best, bestTag := -1, ""
	for _, tag := range streamTags {
		if i := strings.Index(s, tag); i >= 0 && (best < 0 || i < best) {
			best, bestTag = i, tag
		}
	}
	return best, bestTag
}

// partialTagSuffix returns the length of the longest suffix of s that is a
// proper prefix of a stream tag.
func partialTagSuffix(s string) int {
	for n := min(len(s), len("</answer>")-1); n > 0; n-- {
		suffix := s[len(s)-n:]
		for _, tag := range streamTags {
			if strings.HasPrefix(tag, suffix) {
				return n
			}
		}
	}
	return 0
}
