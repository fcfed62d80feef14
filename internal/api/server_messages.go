package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/booktabs/internal/bridge"
)

func registerMessageHandlers(api huma.API, d Deps) {
	type messageInput struct {
		RawBody []byte `contentType:"application/json"`
	}
	type replyOutput struct {
		Body bridge.Reply
	}

	huma.Register(api, huma.Operation{
		OperationID: "post-message",
		Method:      http.MethodPost,
		Path:        "/api/v1/messages",
		Summary:     "Send a bridge message (closeSportsBookTabs, openSportsBookTabs, openOptionsTab)",
		Description: "The reply is always {\"result\":\"OK\"}; tab failures are logged, not returned.",
		Tags:        []string{"Messages"},
	}, func(ctx context.Context, input *messageInput) (*replyOutput, error) {
		msg, err := decodeMessage(input.RawBody)
		if err != nil {
			return nil, huma.Error400BadRequest("malformed message", err)
		}
		ctx = bridge.WithRequestID(ctx, middleware.GetReqID(ctx))
		out := &replyOutput{}
		out.Body = d.Messages.Handle(ctx, msg)
		return out, nil
	})
}

// decodeMessage keeps the settings payload raw so book order survives until
// the settings migration decodes it.
func decodeMessage(data []byte) (bridge.Message, error) {
	var msg bridge.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return bridge.Message{}, err
	}
	return msg, nil
}
