// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smo-cookie/detect-and-match2/internal/resilience"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const promptTemplate = `다음 텍스트에서 개인정보(이름 및 주소)와 추가 요청된 정보를 탐지해주세요:
- 개인정보에는 연락처, 이메일, 주민등록번호, 주소, 계좌번호 등 개인을 특정할 수 있는 정보가 포함됩니다.
- 추가 요청 정보: %s
JSON 객체 하나만 반환하세요. 반환 형식:
{
    %q: {
        "이름": ["홍길동", "김철수"],
        "주소": ["서울시 강남구 역삼동"]
    },
    %q: {
        "추가 요청 정보": ["Project Alpha", "XYZ Corporation"]
    }
}
텍스트:
%s`

// BuildPrompt renders the chat prompt asking for the reply envelope
func BuildPrompt(text string, extraTerms []string, findingsKey, extraKey string) string {
	extra, _ := json.Marshal(nonNil(extraTerms))
	return fmt.Sprintf(promptTemplate, extra, findingsKey, extraKey, text)
}

// chatURL appends the completions path unless the endpoint already names it
func chatURL(endpoint string) string {
	if strings.HasSuffix(endpoint, "/chat/completions") {
		return endpoint
	}
	return strings.TrimRight(endpoint, "/") + "/chat/completions"
}

// callChat asks an OpenAI compatible chat endpoint and returns the first
// message content with any surrounding code fence removed
func (c *Client) callChat(ctx context.Context, text string, extraTerms []string) (string, error) {
	request := chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "user", Content: BuildPrompt(text, extraTerms, c.opts.FindingsKey, c.opts.ExtraKey)},
		},
	}

	body, err := c.post(ctx, chatURL(c.opts.Endpoint), request)
	if err != nil {
		return "", err
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", resilience.NewTransientError("malformed chat completion", err)
	}
	if len(response.Choices) == 0 {
		return "", resilience.NewTransientError("chat completion has no choices", nil)
	}
	return stripCodeFence(response.Choices[0].Message.Content), nil
}

// stripCodeFence removes a surrounding ``` or ```json fence from model output
func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return content
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
