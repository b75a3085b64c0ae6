package landingv1connect

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// JSONCodec 把普通 Go 结构体编码为 JSON，替换 connect 默认只支持 proto.Message 的 json 编解码
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	// connect 对空请求体也会调用 Unmarshal
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
