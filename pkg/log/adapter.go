// Package log bridges third-party logging interfaces onto the application's
// logrus logger.
package log

import "github.com/sirupsen/logrus"

// BadgerLogrusAdapter satisfies badger.Logger so the embedded asset store
// logs through the same structured logger as everything else. Badger's
// internal chatter about an in-memory store is operational noise, so its
// info-level output is demoted to debug; warnings and errors keep their
// severity.
type BadgerLogrusAdapter struct {
	entry *logrus.Entry
}

func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry: entry}
}

func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{})   { l.entry.Errorf(f, v...) }
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.entry.Warningf(f, v...) }

// Infof deliberately logs at debug level, see the type comment
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{}) { l.entry.Debugf(f, v...) }

func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) { l.entry.Debugf(f, v...) }
