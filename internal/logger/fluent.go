package logger

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Poster Fluentd 客户端的最小接口
type Poster interface {
	Post(tag string, message interface{}) error
}

// FluentHandler 把 slog 记录发送到 Fluentd
// tag 形如 {prefix}.{level}，便于按级别路由
type FluentHandler struct {
	client Poster
	prefix string
	level  slog.Leveler
	attrs  map[string]interface{}
	group  string
}

// NewFluentHandler 创建 Fluentd Handler
func NewFluentHandler(client Poster, prefix string, level slog.Leveler) *FluentHandler {
	if prefix == "" {
		prefix = "workswap"
	}
	return &FluentHandler{
		client: client,
		prefix: prefix,
		level:  level,
		attrs:  map[string]interface{}{},
	}
}

func (h *FluentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *FluentHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]interface{}, len(h.attrs)+r.NumAttrs()+3)
	for k, v := range h.attrs {
		data[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		h.put(data, a)
		return true
	})
	data["level"] = strings.ToLower(r.Level.String())
	data["message"] = r.Message
	data["timestamp"] = r.Time.UTC().Format(time.RFC3339Nano)

	// 投递失败不影响业务
	_ = h.client.Post(h.prefix+"."+strings.ToLower(r.Level.String()), data)
	return nil
}

func (h *FluentHandler) put(data map[string]interface{}, a slog.Attr) {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	putValue(data, key, a.Value)
}

func putValue(data map[string]interface{}, key string, v slog.Value) {
	v = v.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			putValue(data, key+"."+ga.Key, ga.Value)
		}
		return
	}
	if err, ok := v.Any().(error); ok {
		data[key] = err.Error()
		return
	}
	data[key] = v.Any()
}

func (h *FluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		h.put(next.attrs, a)
	}
	return next
}

func (h *FluentHandler) WithGroup(name string) slog.Handler {
	next := h.clone()
	if next.group != "" {
		next.group += "." + name
	} else {
		next.group = name
	}
	return next
}

func (h *FluentHandler) clone() *FluentHandler {
	attrs := make(map[string]interface{}, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &FluentHandler{
		client: h.client,
		prefix: h.prefix,
		level:  h.level,
		attrs:  attrs,
		group:  h.group,
	}
}
