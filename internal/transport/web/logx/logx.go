// Package logx: однострочные key=value логи поверх стандартного *log.Logger.
package logx

import (
	"fmt"
	"log"
	"strings"
)

func Info(l *log.Logger, reqID, op, msg string, kv ...any) {
	l.Print(line("info", reqID, op, msg, nil, kv))
}

func Error(l *log.Logger, reqID, op, msg string, err error, kv ...any) {
	l.Print(line("error", reqID, op, msg, err, kv))
}

func line(lvl, reqID, op, msg string, err error, kv []any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "lvl=%s", lvl)
	if reqID != "" {
		fmt.Fprintf(&sb, " req_id=%s", reqID)
	}
	fmt.Fprintf(&sb, " op=%s msg=%q", op, msg)
	if err != nil {
		fmt.Fprintf(&sb, " err=%q", err.Error())
	}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			fmt.Fprintf(&sb, " %s=(missing)", key)
			break
		}
		switch v := kv[i+1].(type) {
		case string:
			fmt.Fprintf(&sb, " %s=%q", key, v)
		default:
			fmt.Fprintf(&sb, " %s=%v", key, v)
		}
	}
	return sb.String()
}
