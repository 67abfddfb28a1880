package store

import (
	"context"

	log "github.com/sirupsen/logrus"

	"taskboard/telemetry"
)

func startOp(ctx context.Context, logger *log.Logger, collection, name string) (context.Context, *telemetry.Event) {
	ctx, ev := telemetry.Start(ctx, logger, telemetry.Operation{
		Span:   "store." + collection + "." + name,
		Event:  "taskboard.store." + collection + "." + name,
		Prefix: "taskboard.store",
	})
	ev.Set("collection", collection)
	return ctx, ev
}

func loggerOrDefault(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.StandardLogger()
	}
	return logger
}
