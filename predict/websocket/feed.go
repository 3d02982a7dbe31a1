package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/logger"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/pkg/sigchan"
	"github.com/jumpingfella/Predict.Fun-Liqudity-Farming/predict/types"
)

const orderbookTopicPrefix = "predictOrderbook/"

// OrderbookHandler 接收某个市场的盘口推送（同一市场按到达顺序调用）
type OrderbookHandler func(marketID string, book types.OrderbookJSON)

// ConnectionHandler 连接状态变化回调
type ConnectionHandler func(connected bool)

// frame 服务端下行帧。type "M" 是订阅消息（topic + data），
// "R" 是对 subscribe/unsubscribe 的应答。
type frame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	RequestID int64           `json:"requestId"`
	Data      json.RawMessage `json:"data"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// request 客户端上行帧
type request struct {
	Method    string      `json:"method"`
	RequestID int64       `json:"requestId,omitempty"`
	Params    []string    `json:"params,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Feed Predict 盘口 WebSocket 客户端（信号驱动重连）。
// 断线重连后自动恢复所有已订阅市场。
type Feed struct {
	url    string
	apiKey string

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	subMu         sync.Mutex
	subscriptions map[string]bool
	requestID     int64

	reconnectC     *sigchan.Chan
	reconnectDelay time.Duration

	onOrderbook  OrderbookHandler
	onConnection ConnectionHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeed 创建盘口数据源
func NewFeed(url, apiKey string) *Feed {
	return &Feed{
		url:            url,
		apiKey:         apiKey,
		subscriptions:  make(map[string]bool),
		reconnectC:     sigchan.New(1),
		reconnectDelay: 5 * time.Second,
	}
}

// OnOrderbook 注册盘口推送回调（连接前调用）
func (f *Feed) OnOrderbook(handler OrderbookHandler) {
	f.onOrderbook = handler
}

// OnConnectionChange 注册连接状态回调
func (f *Feed) OnConnectionChange(handler ConnectionHandler) {
	f.onConnection = handler
}

// Connect 建立连接并启动读取/重连协程
func (f *Feed) Connect(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	if err := f.dial(); err != nil {
		return err
	}

	f.wg.Add(2)
	go func() {
		defer f.wg.Done()
		f.readLoop()
	}()
	go func() {
		defer f.wg.Done()
		f.reconnector()
	}()
	return nil
}

func (f *Feed) dial() error {
	url := f.url
	if f.apiKey != "" {
		url += "?apiKey=" + f.apiKey
	}

	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return errors.Wrap(err, "连接行情 WebSocket 失败")
	}

	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.conn = conn
	f.closed = false
	f.mu.Unlock()

	if f.onConnection != nil {
		f.onConnection(true)
	}
	logger.Infof("行情 WebSocket 已连接: %s", f.url)

	// 恢复既有订阅
	f.subMu.Lock()
	markets := make([]string, 0, len(f.subscriptions))
	for id := range f.subscriptions {
		markets = append(markets, id)
	}
	f.subMu.Unlock()
	for _, id := range markets {
		if err := f.sendSubscribe("subscribe", id); err != nil {
			logger.Warnf("恢复订阅失败 market=%s: %v", id, err)
		}
	}
	return nil
}

// Subscribe 订阅市场盘口
func (f *Feed) Subscribe(marketID string) error {
	f.subMu.Lock()
	f.subscriptions[marketID] = true
	f.subMu.Unlock()
	return f.sendSubscribe("subscribe", marketID)
}

// Unsubscribe 退订市场盘口
func (f *Feed) Unsubscribe(marketID string) error {
	f.subMu.Lock()
	delete(f.subscriptions, marketID)
	f.subMu.Unlock()
	return f.sendSubscribe("unsubscribe", marketID)
}

func (f *Feed) sendSubscribe(method, marketID string) error {
	f.subMu.Lock()
	f.requestID++
	id := f.requestID
	f.subMu.Unlock()

	return f.send(request{
		Method:    method,
		RequestID: id,
		Params:    []string{orderbookTopicPrefix + marketID},
	})
}

func (f *Feed) send(req request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil || f.closed {
		return errors.New("WebSocket 未连接")
	}
	return f.conn.WriteJSON(req)
}

func (f *Feed) readLoop() {
	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		closed := f.closed
		f.mu.RUnlock()
		if conn == nil || closed {
			// 等重连器换上新连接
			time.Sleep(200 * time.Millisecond)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.ctx.Done():
				return
			default:
			}
			logger.Warnf("读取行情消息失败: %v，触发重连", err)
			f.markClosed()
			f.signalReconnect()
			time.Sleep(200 * time.Millisecond)
			continue
		}
		f.handleMessage(raw)
	}
}

func (f *Feed) handleMessage(raw []byte) {
	var msg frame
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Warnf("解析行情消息失败: %v", err)
		return
	}

	switch msg.Type {
	case "R":
		if msg.Error != nil {
			logger.Warnf("订阅请求失败 requestId=%d: %s", msg.RequestID, msg.Error.Message)
		} else {
			logger.Debugf("订阅请求成功 requestId=%d", msg.RequestID)
		}

	case "M":
		if msg.Topic == "heartbeat" {
			// 原样回送时间戳
			var ts json.RawMessage = msg.Data
			if err := f.send(request{Method: "heartbeat", Data: ts}); err != nil {
				logger.Debugf("回送 heartbeat 失败: %v", err)
			}
			return
		}
		if strings.HasPrefix(msg.Topic, orderbookTopicPrefix) {
			marketID := strings.TrimPrefix(msg.Topic, orderbookTopicPrefix)
			var book types.OrderbookJSON
			if err := json.Unmarshal(msg.Data, &book); err != nil {
				logger.Warnf("解析盘口数据失败 market=%s: %v", marketID, err)
				return
			}
			if len(book.Bids) == 0 && len(book.Asks) == 0 {
				return
			}
			if f.onOrderbook != nil {
				f.onOrderbook(marketID, book)
			}
		}
	}
}

func (f *Feed) reconnector() {
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.reconnectC.C():
			logger.Warnf("行情连接断开，%v 后重连...", f.reconnectDelay)
			select {
			case <-f.ctx.Done():
				return
			case <-time.After(f.reconnectDelay):
			}
			if err := f.dial(); err != nil {
				logger.Warnf("重连失败: %v，稍后再试", err)
				f.signalReconnect()
			}
		}
	}
}

func (f *Feed) signalReconnect() {
	if f.onConnection != nil {
		f.onConnection(false)
	}
	f.reconnectC.Emit()
}

func (f *Feed) markClosed() {
	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.closed = true
	f.mu.Unlock()
}

// Close 关闭连接并等待协程退出
func (f *Feed) Close() {
	if f.cancel != nil {
		f.cancel()
	}
	f.markClosed()
	f.wg.Wait()
}
