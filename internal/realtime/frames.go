package realtime

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// 目的地前缀
const (
	PrefixApp   = "/app"
	PrefixUser  = "/user"
	PrefixTopic = "/topic"
	PrefixQueue = "/queue"

	TopicOnline = "/topic/online"
)

const (
	protocolVersion = "1.2"
	serverName      = "workswap"
	contentTypeJSON = "application/json"
)

// decodeFrame 解析一条 WebSocket 文本消息
// 只含换行的消息是心跳，返回 nil 帧
func decodeFrame(data []byte) (*frame.Frame, error) {
	if len(bytes.Trim(data, "\r\n")) == 0 {
		return nil, nil
	}
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("decode stomp frame: %w", err)
	}
	return f, nil
}

// encodeFrame 把帧编码成一条 WebSocket 文本消息
func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if len(f.Body) > 0 {
		f.Header.Set(frame.ContentLength, strconv.Itoa(len(f.Body)))
	}
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode stomp frame: %w", err)
	}
	return buf.Bytes(), nil
}

func connectedFrame(sessionID string, heartBeat string) *frame.Frame {
	return frame.New(frame.CONNECTED,
		frame.Version, protocolVersion,
		frame.Server, serverName,
		frame.Session, sessionID,
		frame.HeartBeat, heartBeat)
}

func errorFrame(message, detail string) *frame.Frame {
	f := frame.New(frame.ERROR, frame.Message, message)
	if detail != "" {
		f.Header.Set(frame.ContentType, "text/plain")
		f.Body = []byte(detail)
	}
	return f
}

func receiptFrame(receiptID string) *frame.Frame {
	return frame.New(frame.RECEIPT, frame.ReceiptId, receiptID)
}

func messageFrame(destination, subscriptionID, messageID string, body []byte) *frame.Frame {
	f := frame.New(frame.MESSAGE,
		frame.Destination, destination,
		frame.Subscription, subscriptionID,
		frame.MessageId, messageID,
		frame.ContentType, contentTypeJSON)
	f.Body = body
	return f
}

// negotiateHeartbeat 按 STOMP 1.2 协商心跳
// 客户端 heart-beat 为 "cx,cy"：cx 客户端发送间隔，cy 客户端希望接收的间隔
// 返回服务端发送间隔、期望的客户端间隔以及 CONNECTED 的 heart-beat 头
func negotiateHeartbeat(header string, interval time.Duration) (send, expect time.Duration, value string) {
	if interval <= 0 {
		return 0, 0, "0,0"
	}
	cx, cy := parseHeartbeat(header)
	ms := interval.Milliseconds()

	if cy > 0 {
		send = time.Duration(max(ms, cy)) * time.Millisecond
	}
	if cx > 0 {
		expect = time.Duration(max(ms, cx)) * time.Millisecond
	}

	sx, sy := int64(0), int64(0)
	if send > 0 {
		sx = ms
	}
	if expect > 0 {
		sy = ms
	}
	return send, expect, strconv.FormatInt(sx, 10) + "," + strconv.FormatInt(sy, 10)
}

func parseHeartbeat(header string) (int64, int64) {
	parts := strings.Split(header, ",")
	if len(parts) != 2 {
		return 0, 0
	}
	cx, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	cy, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err1 != nil || err2 != nil || cx < 0 || cy < 0 {
		return 0, 0
	}
	return cx, cy
}

// acceptsVersion 客户端未声明版本时视为 1.0，兼容处理
func acceptsVersion(header string) bool {
	if header == "" {
		return true
	}
	for _, v := range strings.Split(header, ",") {
		switch strings.TrimSpace(v) {
		case "1.0", "1.1", "1.2":
			return true
		}
	}
	return false
}

// userDestination 把用户相对目的地转换成客户端订阅的目的地
func userDestination(destination string) string {
	return PrefixUser + destination
}

// allowedSubscription 客户端只能订阅广播和自己的用户队列
func allowedSubscription(destination string) bool {
	for _, prefix := range []string{PrefixTopic + "/", PrefixQueue + "/", PrefixUser + PrefixQueue + "/"} {
		if strings.HasPrefix(destination, prefix) && len(destination) > len(prefix) {
			return true
		}
	}
	return false
}
