package session

// casParticipantsLua replaces the participant list only if it still equals
// the value the caller read, and refreshes every key's lifetime.
//
//	KEYS: session hash, code key, live set
//	ARGV: expected, next, status, updated_at, ttl seconds, expiry unix, id
//	returns 1 applied, 0 mismatch, -1 missing
const casParticipantsLua = `
local key = KEYS[1]
local current = redis.call('HGET', key, 'participants')
if not current then return -1 end
if current ~= ARGV[1] then return 0 end

redis.call('HSET', key, 'participants', ARGV[2], 'status', ARGV[3], 'updated_at', ARGV[4])
local ttl = tonumber(ARGV[5])
redis.call('EXPIRE', key, ttl)
redis.call('EXPIRE', KEYS[2], ttl)
redis.call('ZADD', KEYS[3], ARGV[6], ARGV[7])
return 1
`

// casStatusLua moves status from ARGV[1] to ARGV[2].
const casStatusLua = `
local key = KEYS[1]
local status = redis.call('HGET', key, 'status')
if not status then return -1 end
if status ~= ARGV[1] then return 0 end

redis.call('HSET', key, 'status', ARGV[2], 'updated_at', ARGV[3])
return 1
`

// releaseCodeLua deletes a code mapping only while it still points at ARGV[1].
const releaseCodeLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// rescoreLua sets a session's live-set score to the moment its hash
// actually expires, measured on the Redis clock. The lifetime itself is
// left alone.
//
//	KEYS: session hash, live set
//	ARGV: id
//	returns 1 re-scored, 0 no expiry set, -1 missing
const rescoreLua = `
local pttl = redis.call('PTTL', KEYS[1])
if pttl == -2 then return -1 end
if pttl < 0 then return 0 end

local now = redis.call('TIME')
local nowMs = tonumber(now[1]) * 1000 + math.floor(tonumber(now[2]) / 1000)
redis.call('ZADD', KEYS[2], math.ceil((nowMs + pttl) / 1000), ARGV[1])
return 1
`
