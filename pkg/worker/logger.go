package worker

import (
	"github.com/seocheck/headchecker/pkg/logging"
	"go.uber.org/zap"
)

var logger = logging.Create("worker", logging.Dev)

func SetLogger(l *zap.SugaredLogger) {
	logger = l
}
