package music

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// LyricLine is one synchronized lyric row. Time is seconds from track start.
type LyricLine struct {
	Time float64 `json:"time"`
	Text string  `json:"text"`
}

var (
	timeTagRe  = regexp.MustCompile(`^\[(\d{2}):(\d{2})\.(\d{2,3})\]$`)
	syllableRe = regexp.MustCompile(`<\d+,\d+>`)
)

// ParseLRC parses both upstream lyric shapes into ordered lines:
//
//	[mm:ss.xx]plain text, optionally with <offset,duration> syllable marks
//	[mm:ss.xx]{"c":[{"tx":"..."},...]}   (per-syllable json payload)
//	{"t":ms,"c":[{"tx":"..."}]}          (metadata rows without a time tag)
//
// Unrecognizable lines are skipped; malformed input yields an empty slice,
// never an error. Output is stable-sorted ascending by time.
func ParseLRC(raw string) []LyricLine {
	if raw == "" {
		return nil
	}

	var lines []LyricLine
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			end := strings.Index(line, "]")
			if end < 0 {
				continue
			}
			m := timeTagRe.FindStringSubmatch(line[:end+1])
			if m == nil {
				continue
			}
			minutes, _ := strconv.Atoi(m[1])
			seconds, _ := strconv.Atoi(m[2])
			frac := m[3]
			for len(frac) < 3 {
				frac += "0"
			}
			millis, _ := strconv.Atoi(frac)
			at := float64(minutes*60+seconds) + float64(millis)/1000

			text := lyricText(strings.TrimSpace(line[end+1:]))
			if text != "" {
				lines = append(lines, LyricLine{Time: at, Text: text})
			}
			continue
		}

		// metadata row, e.g. {"t":0,"c":[{"tx":"作词: "},{"tx":"..."}]}
		if strings.HasPrefix(line, "{") {
			obj := gjson.Parse(line)
			if obj.Type != gjson.JSON || !obj.Get("c").IsArray() {
				continue
			}
			text := strings.TrimSpace(joinSyllables(obj.Get("c")))
			if text != "" {
				lines = append(lines, LyricLine{Time: obj.Get("t").Float() / 1000, Text: text})
			}
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Time < lines[j].Time })
	return lines
}

func lyricText(content string) string {
	if strings.HasPrefix(content, "{") && strings.Contains(content, `"c":[`) {
		obj := gjson.Parse(content)
		if obj.Get("c").IsArray() {
			return strings.TrimSpace(joinSyllables(obj.Get("c")))
		}
	}
	return strings.TrimSpace(syllableRe.ReplaceAllString(content, ""))
}

func joinSyllables(c gjson.Result) string {
	var b strings.Builder
	c.ForEach(func(_, item gjson.Result) bool {
		b.WriteString(item.Get("tx").String())
		return true
	})
	return b.String()
}

// NormalizeKuwoLyric converts the fallback API lyric payload into the
// common [mm:ss.xx]text intermediate. data is the response "data" object;
// lrclist is either a pre-joined string or an array of {time, lineLyric}.
func NormalizeKuwoLyric(data gjson.Result) string {
	lrclist := data.Get("lrclist")

	if lrclist.Type == gjson.String {
		return strings.ReplaceAll(lrclist.String(), `\n`, "\n")
	}

	if lrclist.IsArray() {
		var b strings.Builder
		lrclist.ForEach(func(_, line gjson.Result) bool {
			if line.Type == gjson.String {
				if s := strings.TrimSpace(line.String()); s != "" {
					b.WriteString(s)
					b.WriteByte('\n')
				}
				return true
			}
			text := line.Get("lineLyric").String()
			if text == "" {
				return true
			}
			sec := line.Get("time").Float()
			b.WriteString(formatTimeTag(sec))
			b.WriteString(text)
			b.WriteByte('\n')
			return true
		})
		return b.String()
	}

	// some responses carry a plain lyric/content string instead
	if s := data.Get("lyric").String(); s != "" {
		return s
	}
	return data.Get("content").String()
}

func formatTimeTag(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	minutes := int(sec) / 60
	rest := sec - float64(minutes*60)
	return fmt.Sprintf("[%02d:%05.2f]", minutes, rest)
}
