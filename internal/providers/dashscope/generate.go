package dashscope

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mediagen/internal/domain"
	"mediagen/internal/providers"
)

type message struct {
	Role    string    `json:"role"`
	Content []content `json:"content"`
}

type content struct {
	Text string `json:"text,omitempty"`
}

type imageRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []message `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Size      string `json:"size,omitempty"`
		Watermark bool   `json:"watermark"`
	} `json:"parameters"`
}

type imageResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type textMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type textRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []textMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		ResultFormat string `json:"result_format"`
	} `json:"parameters"`
}

type textResponse struct {
	Output struct {
		Choices []struct {
			Message textMessage `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
}

type videoRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt string `json:"prompt"`
	} `json:"input"`
	Parameters struct {
		Size     string `json:"size,omitempty"`
		Duration int    `json:"duration,omitempty"`
	} `json:"parameters"`
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		VideoURL   string `json:"video_url"`
		Code       string `json:"code"`
		Message    string `json:"message"`
	} `json:"output"`
	RequestID string `json:"request_id"`
}

const (
	pathImage = "/services/aigc/multimodal-generation/generation"
	pathText  = "/services/aigc/text-generation/generation"
	pathVideo = "/services/aigc/video-generation/video-synthesis"
)

// Submit dispatches one generation. Images and transcripts complete in the
// same call; videos return a task id.
func (c *Client) Submit(ctx context.Context, p providers.Payload) (providers.Submission, error) {
	prompt := strings.TrimSpace(p.Prompt)
	if prompt == "" {
		return providers.Submission{}, errors.New("dashscope: prompt is required")
	}
	switch p.Kind {
	case domain.KindImage:
		res, err := c.generateImage(ctx, prompt, p)
		if err != nil {
			return providers.Submission{}, err
		}
		return providers.Submission{Result: res}, nil
	case domain.KindTranscript:
		res, err := c.generateTranscript(ctx, prompt, p)
		if err != nil {
			return providers.Submission{}, err
		}
		return providers.Submission{Result: res}, nil
	case domain.KindVideo:
		taskID, err := c.submitVideo(ctx, prompt, p)
		if err != nil {
			return providers.Submission{}, err
		}
		return providers.Submission{JobID: taskID}, nil
	default:
		return providers.Submission{}, fmt.Errorf("dashscope: unsupported kind %q", p.Kind)
	}
}

func (c *Client) generateImage(ctx context.Context, prompt string, p providers.Payload) (*domain.Result, error) {
	var payload imageRequest
	payload.Model = c.imageModel
	payload.Input.Messages = []message{{Role: "user", Content: []content{{Text: prompt}}}}
	payload.Parameters.Size = sizeParam(p.Width, p.Height)

	var decoded imageResponse
	if err := c.do(ctx, http.MethodPost, pathImage, false, payload, &decoded); err != nil {
		return nil, err
	}
	if decoded.Code != "" {
		return nil, fmt.Errorf("dashscope: %s (%s)", decoded.Message, decoded.Code)
	}
	var urls []string
	for _, choice := range decoded.Output.Choices {
		for _, item := range choice.Message.Content {
			if u := strings.TrimSpace(item.Image); u != "" {
				urls = append(urls, u)
			}
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("dashscope: empty image url")
	}
	width, height := decoded.Usage.Width, decoded.Usage.Height
	if width == 0 || height == 0 {
		width, height = p.Width, p.Height
	}
	c.logger.Debug().
		Str("model", c.imageModel).
		Str("request_id", decoded.RequestID).
		Str("url", urls[0]).
		Msg("dashscope: generated image")
	return &domain.Result{
		MediaURLs: urls,
		Format:    "image/png",
		Width:     width,
		Height:    height,
		Metadata:  map[string]any{"provider": "dashscope", "model": c.imageModel},
	}, nil
}

func (c *Client) generateTranscript(ctx context.Context, prompt string, p providers.Payload) (*domain.Result, error) {
	var payload textRequest
	payload.Model = c.textModel
	payload.Input.Messages = []textMessage{
		{Role: "system", Content: transcriptInstruction(p.Voice, p.Locale)},
		{Role: "user", Content: prompt},
	}
	payload.Parameters.ResultFormat = "message"

	var decoded textResponse
	if err := c.do(ctx, http.MethodPost, pathText, false, payload, &decoded); err != nil {
		return nil, err
	}
	if len(decoded.Output.Choices) == 0 || strings.TrimSpace(decoded.Output.Choices[0].Message.Content) == "" {
		return nil, errors.New("dashscope: empty transcript")
	}
	return &domain.Result{
		Text:     strings.TrimSpace(decoded.Output.Choices[0].Message.Content),
		Format:   "text/plain",
		Metadata: map[string]any{"provider": "dashscope", "model": c.textModel},
	}, nil
}

func (c *Client) submitVideo(ctx context.Context, prompt string, p providers.Payload) (string, error) {
	var payload videoRequest
	payload.Model = c.videoModel
	payload.Input.Prompt = prompt
	payload.Parameters.Size = sizeParam(p.Width, p.Height)
	payload.Parameters.Duration = p.DurationSeconds

	var decoded taskResponse
	if err := c.do(ctx, http.MethodPost, pathVideo, true, payload, &decoded); err != nil {
		return "", err
	}
	if decoded.Output.TaskID == "" {
		return "", errors.New("dashscope: missing task id")
	}
	c.logger.Debug().
		Str("model", c.videoModel).
		Str("task_id", decoded.Output.TaskID).
		Msg("dashscope: video task accepted")
	return decoded.Output.TaskID, nil
}

// Status reads an async task. DashScope does not report percentages, so
// running tasks come back with Progress -1.
func (c *Client) Status(ctx context.Context, jobID string) (providers.StatusReport, error) {
	if strings.TrimSpace(jobID) == "" {
		return providers.StatusReport{}, errors.New("dashscope: task id is required")
	}
	var decoded taskResponse
	if err := c.do(ctx, http.MethodGet, "/tasks/"+jobID, false, nil, &decoded); err != nil {
		return providers.StatusReport{}, err
	}
	switch strings.ToUpper(decoded.Output.TaskStatus) {
	case "SUCCEEDED":
		if decoded.Output.VideoURL == "" {
			return providers.StatusReport{State: providers.StateFailed, Progress: -1, Message: "provider returned no video"}, nil
		}
		return providers.StatusReport{
			State:    providers.StateSucceeded,
			Progress: 100,
			Result: &domain.Result{
				MediaURLs: []string{decoded.Output.VideoURL},
				Format:    "video/mp4",
				Metadata:  map[string]any{"provider": "dashscope", "model": c.videoModel, "task_id": jobID},
			},
		}, nil
	case "FAILED", "CANCELED", "UNKNOWN":
		msg := decoded.Output.Message
		if msg == "" {
			msg = "video generation failed"
		}
		return providers.StatusReport{State: providers.StateFailed, Progress: -1, Message: msg}, nil
	default:
		return providers.StatusReport{State: providers.StateRunning, Progress: -1}, nil
	}
}

func sizeParam(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	return fmt.Sprintf("%d*%d", width, height)
}

func transcriptInstruction(voice, locale string) string {
	var b strings.Builder
	b.WriteString("Write a voiceover transcript for a short video about the user's topic. ")
	b.WriteString("Return only the spoken lines, no stage directions.")
	if voice = strings.TrimSpace(voice); voice != "" {
		b.WriteString(" Tone: " + voice + ".")
	}
	if locale = strings.TrimSpace(locale); locale != "" {
		b.WriteString(" Language: " + locale + ".")
	}
	return b.String()
}

var _ providers.Provider = (*Client)(nil)
