// Package logx is a thin structured-logging facade over zerolog.
//
// It exists so the rest of the codebase never imports zerolog directly:
// components take a logx.Logger, the app owns the logx.Service, and log
// sinks (console, file, ops channel) can be swapped at runtime via Apply.
package logx
