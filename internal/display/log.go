package display

import (
	"github.com/MrSnakeDoc/goesview/internal/filename"
	"github.com/MrSnakeDoc/goesview/internal/logger"
	"github.com/MrSnakeDoc/goesview/internal/viewer"
)

// Log writes one structured line per render.
type Log struct {
	log logger.Logger
}

func NewLog(log logger.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Render(v viewer.View) {
	fields := []logger.Field{
		logger.String("state", string(v.State)),
		logger.String("satellite", v.Selection.Satellite),
		logger.String("image", v.Selection.Image),
		logger.String("text", v.Text),
		logger.Int("satellites", len(v.Satellites)),
		logger.Int("images", len(v.Images)),
	}
	if ts, ok := filename.Parse(v.Selection.Image); ok {
		fields = append(fields, logger.Time("captured_at", ts))
	}
	l.log.Info("display updated", fields...)
}
