package domain

import "strconv"

// Ключи кеша: единое место, чтобы не расползались по коду.
func CacheKeyPresence(id NoteID) string  { return "note:" + strconv.FormatInt(id, 10) + ":users" }
func CacheKeyNoteTopic(id NoteID) string { return "note:" + strconv.FormatInt(id, 10) + ":events" }
func CacheKeyTokenJTI(jti string) string { return "jti:" + jti }
