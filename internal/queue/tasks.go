package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types served by the worker.
const (
	TypeDeskew = "image:deskew"
	TypeOCR    = "image:ocr"
)

// DeskewPayload is the payload of an image:deskew task.
type DeskewPayload struct {
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
}

// OCRPayload is the payload of an image:ocr task.
type OCRPayload struct {
	ImagePath string `json:"image_path"`
	Languages string `json:"languages"`
}

// NewDeskewTask builds an image:deskew task.
func NewDeskewTask(inputPath, outputPath string, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(DeskewPayload{InputPath: inputPath, OutputPath: outputPath})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deskew payload: %w", err)
	}
	return asynq.NewTask(TypeDeskew, payload, opts...), nil
}

// NewOCRTask builds an image:ocr task.
func NewOCRTask(imagePath, languages string, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(OCRPayload{ImagePath: imagePath, Languages: languages})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ocr payload: %w", err)
	}
	return asynq.NewTask(TypeOCR, payload, opts...), nil
}
