package report

import (
	"github.com/seocheck/headchecker/pkg/logging"
	"go.uber.org/zap"
)

var logger = logging.Create("report", logging.Dev)

func SetLogger(l *zap.SugaredLogger) {
	logger = l
}
