// Package logger предоставляет именованные логгеры mgmtcore.
package logger

import (
	"fmt"
	"log"
	"os"
)

// Quiet при true отключает Info; Warn, Error и Critical выводятся всегда.
var Quiet bool

// exit подменяется в тестах.
var exit = os.Exit

// Logger добавляет к каждой строке имя подсистемы.
type Logger struct {
	name string
}

// New возвращает логгер подсистемы name.
func New(name string) *Logger {
	return &Logger{name: name}
}

// Name возвращает имя подсистемы.
func (l *Logger) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

func (l *Logger) output(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l == nil || l.name == "" {
		log.Printf("mgmtcore: %s: %s", level, msg)
		return
	}
	log.Printf("mgmtcore: [%s] %s: %s", l.name, level, msg)
}

// Info выводит информационное сообщение, если Quiet == false.
func (l *Logger) Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	l.output("INFO", format, args...)
}

// Warn выводит предупреждение.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.output("WARN", format, args...)
}

// Error выводит ошибку.
func (l *Logger) Error(format string, args ...interface{}) {
	l.output("ERROR", format, args...)
}

// Critical выводит сообщение и завершает процесс.
func (l *Logger) Critical(format string, args ...interface{}) {
	l.output("CRITICAL", format, args...)
	exit(1)
}

// Info пишет через безымянный логгер.
func Info(format string, args ...interface{}) {
	(*Logger)(nil).Info(format, args...)
}

// Error пишет через безымянный логгер.
func Error(format string, args ...interface{}) {
	(*Logger)(nil).Error(format, args...)
}
