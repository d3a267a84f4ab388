package redisstore

import "github.com/redis/go-redis/v9"

// The scripts keep a record, its deadline indexes and its user index in
// step. User index keys are derived from ARGV because the user of the
// previous version is only known inside the script.

// KEYS: record, idle zset, absolute zset
// ARGV: mode (create|update), id, json, idle score, absolute score, user prefix, userid
const saveScript = `
local exists = redis.call("EXISTS", KEYS[1])
if ARGV[1] == "create" and exists == 1 then
  return 0
end
if ARGV[1] == "update" and exists == 0 then
  return 0
end
if exists == 1 then
  local old = cjson.decode(redis.call("GET", KEYS[1]))
  if type(old.userid) == "string" then
    redis.call("SREM", ARGV[6] .. old.userid, ARGV[2])
  end
end
redis.call("SET", KEYS[1], ARGV[3])
if ARGV[4] == "" then
  redis.call("ZREM", KEYS[2], ARGV[2])
else
  redis.call("ZADD", KEYS[2], ARGV[4], ARGV[2])
end
if ARGV[5] == "" then
  redis.call("ZREM", KEYS[3], ARGV[2])
else
  redis.call("ZADD", KEYS[3], ARGV[5], ARGV[2])
end
if ARGV[7] ~= "" then
  redis.call("SADD", ARGV[6] .. ARGV[7], ARGV[2])
end
return 1
`

// KEYS: record, idle zset, absolute zset
// ARGV: id, user prefix
const deleteScript = `
local data = redis.call("GET", KEYS[1])
if data then
  local old = cjson.decode(data)
  if type(old.userid) == "string" then
    redis.call("SREM", ARGV[2] .. old.userid, ARGV[1])
  end
  redis.call("DEL", KEYS[1])
end
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("ZREM", KEYS[3], ARGV[1])
return data and 1 or 0
`

// KEYS: record, idle zset, absolute zset
// ARGV: id, user prefix, now score, idle enabled, absolute enabled
// Returns 0 (kept), 1 (idle) or 2 (absolute).
const deleteIfExpiredScript = `
local now = tonumber(ARGV[3])
local reason = 0
if ARGV[5] == "1" then
  local abs = redis.call("ZSCORE", KEYS[3], ARGV[1])
  if abs and tonumber(abs) <= now then
    reason = 2
  end
end
if reason == 0 and ARGV[4] == "1" then
  local idle = redis.call("ZSCORE", KEYS[2], ARGV[1])
  if idle and tonumber(idle) <= now then
    reason = 1
  end
end
if reason == 0 then
  return 0
end
local data = redis.call("GET", KEYS[1])
if data then
  local old = cjson.decode(data)
  if type(old.userid) == "string" then
    redis.call("SREM", ARGV[2] .. old.userid, ARGV[1])
  end
  redis.call("DEL", KEYS[1])
end
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("ZREM", KEYS[3], ARGV[1])
if not data then
  return 0
end
return reason
`

// KEYS: user set
// ARGV: record prefix, idle zset, absolute zset
const deleteUserScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
for _, id in ipairs(ids) do
  redis.call("DEL", ARGV[1] .. id)
  redis.call("ZREM", ARGV[2], id)
  redis.call("ZREM", ARGV[3], id)
end
redis.call("DEL", KEYS[1])
return #ids
`

var (
	saveLua            = redis.NewScript(saveScript)
	deleteLua          = redis.NewScript(deleteScript)
	deleteIfExpiredLua = redis.NewScript(deleteIfExpiredScript)
	deleteUserLua      = redis.NewScript(deleteUserScript)
)
