// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"net/url"
	"os"
	"strings"

	"github.com/emicklei/go-restful/v3"
	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

func init() {
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
}

// Logger get current logger
func Logger() *zap.Logger {
	return logger
}

// ResponseLogger returns a logger tagged with the request id of a REST response.
func ResponseLogger(resp *restful.Response) *zap.Logger {
	return logger.With(zap.String("request_id", resp.Header().Get("X-Request-ID")))
}

// CloseLogger silences everything below fatal.
func CloseLogger() {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.FatalLevel)
	var err error
	logger, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}

// AddFlags registers logging flags on a command line.
func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.String("log-level", "", "minimum log level: debug, info, warn or error")
	flagSet.String("log-path", "", "path of log file")
	flagSet.Int("log-max-size", 100, "maximum size in megabytes of the log file")
	flagSet.Int("log-max-age", 0, "maximum number of days to retain old log files")
	flagSet.Int("log-max-backups", 0, "maximum number of old log files to retain")
}

// SetLogger replaces the global logger. Debug mode writes colored console lines at debug
// level, otherwise JSON lines at info level. An explicit --log-level overrides the level.
func SetLogger(flagSet *pflag.FlagSet, debug bool) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		level.SetLevel(zap.DebugLevel)
	}
	if text, _ := flagSet.GetString("log-level"); text != "" {
		if err := level.UnmarshalText([]byte(text)); err != nil {
			logger.Warn("invalid log level", zap.String("log_level", text), zap.Error(err))
		}
	}
	core := zapcore.NewCore(newEncoder(debug), zap.CombineWriteSyncers(newWriters(flagSet)...), level)
	logger = zap.New(core)
}

func newEncoder(debug bool) zapcore.Encoder {
	timeEncoder := zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999999")
	if debug {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = timeEncoder
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = timeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// newWriters returns stdout plus a rotated file when --log-path is given.
func newWriters(flagSet *pflag.FlagSet) []zapcore.WriteSyncer {
	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if !flagSet.Changed("log-path") {
		return writers
	}
	path, _ := flagSet.GetString("log-path")
	rotation := &lumberjack.Logger{Filename: path}
	rotation.MaxSize, _ = flagSet.GetInt("log-max-size")
	rotation.MaxAge, _ = flagSet.GetInt("log-max-age")
	rotation.MaxBackups, _ = flagSet.GetInt("log-max-backups")
	return append(writers, zapcore.AddSync(rotation))
}

const mysqlPrefix = "mysql://"

// RedactDBURL masks credentials in a store URL before it is logged.
func RedactDBURL(rawURL string) string {
	if strings.HasPrefix(rawURL, mysqlPrefix) {
		parsed, err := mysql.ParseDSN(rawURL[len(mysqlPrefix):])
		if err != nil {
			return rawURL
		}
		parsed.User = strings.Repeat("x", len(parsed.User))
		parsed.Passwd = strings.Repeat("x", len(parsed.Passwd))
		return mysqlPrefix + parsed.FormatDSN()
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.User == nil {
		return rawURL
	}
	username := parsed.User.Username()
	if password, ok := parsed.User.Password(); ok {
		parsed.User = url.UserPassword(strings.Repeat("x", len(username)), strings.Repeat("x", len(password)))
	} else {
		parsed.User = url.User(strings.Repeat("x", len(username)))
	}
	return parsed.String()
}

// GetErrorHandler routes OpenTelemetry export failures to the logger.
func GetErrorHandler() otel.ErrorHandler {
	return otel.ErrorHandlerFunc(func(err error) {
		Logger().Warn("failed to export traces", zap.Error(err))
	})
}
