// Package logger wraps zap for dyst.
//
// A global console logger writes to stderr at a level shared by every logger
// created with New. Services take a context and log through the logger stored
// in it (see ToContext, WithName, WithKV), falling back to the global one.
package logger
