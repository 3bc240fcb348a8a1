package api

import (
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

// Common request/response structures

// CreateTaskRequest defines the payload for creating an images task.
// Only the prefix is required; everything else falls back to the server
// configuration.
type CreateTaskRequest struct {
	Prefix    string `json:"prefix"     validate:"required,min=1,max=128"`
	UseRefine bool   `json:"use_refine"`

	// Limit caps how many matching images the task takes, in sorted
	// order. Zero or absent means no cap.
	Limit int `json:"limit"      validate:"omitempty,gte=0"`

	// ImagesDir and OutputDir override the configured directories for
	// this task only.
	ImagesDir string `json:"images_dir" validate:"omitempty,max=4096"`
	OutputDir string `json:"output_dir" validate:"omitempty,max=4096"`

	Workers int `json:"workers"    validate:"omitempty,gte=0,lte=64"`
}

// CreateVideoTaskRequest defines the payload for creating a full-pipeline
// video task. The video must already exist in the library.
type CreateVideoTaskRequest struct {
	VideoName string `json:"video_name"  validate:"required,min=1,max=128"`

	// OutputName names the produced dataset. Defaults to the video name.
	OutputName string `json:"output_name" validate:"omitempty,max=128"`

	FPS       int  `json:"fps"         validate:"omitempty,gte=1,lte=30"`
	UseRefine bool `json:"use_refine"`
	Workers   int  `json:"workers"     validate:"omitempty,gte=0,lte=64"`
}

// TaskResponse wraps a single task snapshot.
type TaskResponse struct {
	Task domain.TaskSnapshot `json:"task"`
}

// TasksResponse wraps the full task list, newest first.
type TasksResponse struct {
	Tasks []domain.TaskSnapshot `json:"tasks"`
}

// VideosResponse lists the video stems available for new tasks.
type VideosResponse struct {
	Videos []string `json:"videos"`
}

// IssuesResponse wraps a task's accumulated review findings.
type IssuesResponse struct {
	Issues []domain.Issue `json:"issues"`
}

// FramesResponse wraps the most recently completed frame results,
// newest first.
type FramesResponse struct {
	Frames []domain.FrameResult `json:"frames"`
}

// FrameResponse wraps a single frame result.
type FrameResponse struct {
	Frame domain.FrameResult `json:"frame"`
}

// DeleteResponse acknowledges a successful deletion.
type DeleteResponse struct {
	Success bool `json:"success"`
}
