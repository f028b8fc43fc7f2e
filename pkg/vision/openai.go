package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICaller implements Caller against any OpenAI-compatible
// chat-completions endpoint with vision support.
type OpenAICaller struct {
	client *openai.Client
}

// NewOpenAICaller builds a caller. baseURL may be empty to use the
// default OpenAI endpoint.
func NewOpenAICaller(apiKey, baseURL string) *OpenAICaller {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICaller{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAICaller) Call(ctx context.Context, req CallRequest) (CallResponse, error) {
	mime := req.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Image))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return CallResponse{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return CallResponse{}, &CallError{Kind: KindTransient, Err: errors.New("no choices in response")}
	}

	return CallResponse{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// classify buckets provider errors into the retry taxonomy. 429 and 5xx
// resolve on retry or on another model; 4xx means the request itself was
// refused and retrying is wasted spend.
func classify(err error) *CallError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := KindTransient
		if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != 429 {
			kind = KindRejected
		}
		return &CallError{Kind: kind, Status: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		kind := KindTransient
		if reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 && reqErr.HTTPStatusCode != 429 {
			kind = KindRejected
		}
		return &CallError{Kind: kind, Status: reqErr.HTTPStatusCode, Err: err}
	}

	// Anything unclassified (timeouts, dropped connections) is transient.
	return &CallError{Kind: KindTransient, Err: err}
}
