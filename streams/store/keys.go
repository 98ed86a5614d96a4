package store

import "strings"

type keys struct {
	prefix string
}

func (k keys) meta(id string) string {
	return k.prefix + ":meta:" + id
}

func (k keys) participants(id string) string {
	return k.prefix + ":participants:" + id
}

func (k keys) updates(id string) string {
	return k.prefix + ":updates:" + id
}

func (k keys) metaPattern() string {
	return k.prefix + ":meta:*"
}

func (k keys) updatesPattern() string {
	return k.prefix + ":updates:*"
}

func (k keys) idFromMeta(key string) (string, bool) {
	return cut(key, k.prefix+":meta:")
}

func (k keys) idFromUpdates(channel string) (string, bool) {
	return cut(channel, k.prefix+":updates:")
}

func cut(s, prefix string) (string, bool) {
	id, ok := strings.CutPrefix(s, prefix)
	return id, ok && id != ""
}
