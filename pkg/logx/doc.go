// Package logx wraps zerolog behind a small structured-logging API whose
// sinks and level can be swapped at runtime (config hot-reload) without
// invalidating loggers already handed out to components.
package logx
