package redis

// Redis key naming conventions for SmartQueue data.
// All keys are prefixed with "smartqueue:" to avoid collisions.

const keyPrefix = "smartqueue:"

// ── Token keys ──

// tokenKey returns the key for a token entity: smartqueue:token:{id}
func tokenKey(id string) string { return keyPrefix + "token:" + id }

// tokensKey is the Sorted Set of every token ID scored by creation time.
const tokensKey = keyPrefix + "tokens"

// queueTokensKey returns the Sorted Set of a queue's tokens scored by
// creation time.
func queueTokensKey(queueID string) string { return keyPrefix + "queue_tokens:" + queueID }

// seqsKey is the Sorted Set of every token ID scored by sequence.
const seqsKey = keyPrefix + "token_seqs"

// tokenNumbersKey maps display numbers to token IDs.
const tokenNumbersKey = keyPrefix + "token_numbers"

// activeKey returns the Sorted Set of active tokens of a queue.
func activeKey(queueID string) string { return keyPrefix + "active:" + queueID }

// userTokensKey returns the Sorted Set of a user's tokens.
func userTokensKey(userID string) string { return keyPrefix + "user_tokens:" + userID }

// seqKey is the counter behind NextNumber. One counter serves all domains.
const seqKey = keyPrefix + "token_seq"

// ── Queue and staff keys ──

func queueKey(id string) string { return keyPrefix + "queue:" + id }

const queueIDsKey = keyPrefix + "queue_ids"

func staffKey(id string) string { return keyPrefix + "staff:" + id }

const staffIDsKey = keyPrefix + "staff_ids"

// ── Journal keys ──

// historyKey is the List of history records in append order.
const historyKey = keyPrefix + "history"

// changesKey is the Stream of token status changes.
const changesKey = keyPrefix + "changes"
