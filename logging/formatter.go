package logging

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/grovetools/buildhub/tui/theme"
	"github.com/sirupsen/logrus"
)

// TextFormatter renders "time [LEVEL] [component] message key=value" lines.
type TextFormatter struct {
	Config FormatConfig
}

var levelLabels = map[logrus.Level]string{
	logrus.PanicLevel: "PANIC",
	logrus.FatalLevel: "FATAL",
	logrus.ErrorLevel: "ERROR",
	logrus.WarnLevel:  "WARN",
	logrus.InfoLevel:  "INFO",
	logrus.DebugLevel: "DEBUG",
	logrus.TraceLevel: "TRACE",
}

// Format implements logrus.Formatter.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05 "))
	}
	fmt.Fprintf(b, "[%s]", levelLabels[entry.Level])

	if component, ok := entry.Data["component"]; ok && !f.Config.DisableComponent {
		fmt.Fprintf(b, " [%s]", theme.DefaultTheme.Accent.Render(fmt.Sprint(component)))
	}
	if entry.HasCaller() {
		fmt.Fprintf(b, " [%s:%d %s]",
			filepath.Base(entry.Caller.File), entry.Caller.Line, filepath.Base(entry.Caller.Function))
	}

	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "component" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fieldValue(entry.Data[k]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// fieldValue quotes values containing spaces so fields stay parseable.
func fieldValue(v interface{}) string {
	var s string
	switch val := v.(type) {
	case error:
		s = val.Error()
	case string:
		s = val
	default:
		s = fmt.Sprint(val)
	}
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}
