package redis

import "github.com/go-redis/redis/v8"

// takeScript is a fixed-window consume: over-budget calls do not increment.
// Returns the new count or -1 when the budget is spent.
var takeScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if cur >= tonumber(ARGV[1]) then
  return -1
end
cur = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return cur
`)

// acquireScript takes one slot of a bounded counter. Returns 1 on success.
var acquireScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if cur >= tonumber(ARGV[1]) then
  return 0
end
redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

// releaseScript gives a slot back and never goes below zero.
var releaseScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if cur <= 1 then
  redis.call("DEL", KEYS[1])
  return 0
end
return redis.call("DECR", KEYS[1])
`)

// setAtGenScript writes KEYS[1] only if the generation in KEYS[2] equals ARGV[1].
var setAtGenScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[2]) or "0")
if cur ~= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// invalidateScript advances the generation in KEYS[2] and drops KEYS[1].
var invalidateScript = redis.NewScript(`
local gen = redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
redis.call("DEL", KEYS[1])
return gen
`)
