package demodata

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/slarisk/internal/adapters/dataset"
)

// File names written by WriteDir.
const (
	TasksFile        = "tasks.csv"
	StreamFile       = "stream.jsonl"
	TrajectoriesFile = "trajectories.csv"

	directoryPermission = 0o750
)

// Files lists the paths written by WriteDir.
type Files struct {
	Tasks        string `json:"tasks"`
	Stream       string `json:"stream"`
	Trajectories string `json:"trajectories"`
}

// TrainingSources returns the historical inputs of a training run. The live
// stream is left out so its tasks stay unseen by the model.
func (f Files) TrainingSources() dataset.Sources {
	return dataset.Sources{Tasks: []string{f.Tasks}, Trajectories: []string{f.Trajectories}}
}

// WriteDir writes ds into dir, creating it when needed.
func WriteDir(dir string, ds *Dataset) (Files, error) {
	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return Files{}, fmt.Errorf("create %s: %w", dir, err)
	}
	f := Files{
		Tasks:        filepath.Join(dir, TasksFile),
		Stream:       filepath.Join(dir, StreamFile),
		Trajectories: filepath.Join(dir, TrajectoriesFile),
	}
	if err := writeFile(f.Tasks, func(fh *os.File) error { return dataset.WriteTasks(fh, ds.Tasks) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(f.Stream, func(fh *os.File) error { return dataset.WriteEvents(fh, ds.Stream) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(f.Trajectories, func(fh *os.File) error {
		return dataset.WriteTrajectories(fh, ds.Trajectories)
	}); err != nil {
		return Files{}, err
	}
	return f, nil
}

func writeFile(path string, write func(*os.File) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(fh); err != nil {
		_ = fh.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
