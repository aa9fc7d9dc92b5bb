package sitemap

import (
	"github.com/seocheck/headchecker/pkg/logging"
	"go.uber.org/zap"
)

var logger = logging.Create("sitemap", logging.Dev)

func SetLogger(l *zap.SugaredLogger) {
	logger = l
}
