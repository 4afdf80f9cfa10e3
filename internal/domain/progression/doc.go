// Package progression contains the pure domain model of the progression engine.
//
// ═══════════════════════════════════════════════════════════════════════════
// PROGRESSION DOMAIN
// ═══════════════════════════════════════════════════════════════════════════
//
// Three pieces of derived state are kept per user:
//
//	StreakState   day-granularity streak with a regenerating grace day and a
//	              parallel prayer sub-streak
//	XPAggregate   cached sum of an append-only XPEvent ledger plus the level
//	              it maps to
//	UserAchievement  evidence that an AchievementDef was unlocked; at most one
//	              per (user, achievement)
//
// Activity kinds, XP event kinds and trigger kinds are closed enums. Every
// switch over them is exhaustive, so adding a kind without an XP amount or a
// predicate branch fails loudly in tests instead of silently awarding 0.
//
// The package performs no I/O. Repository interfaces live in repository.go
// and are implemented under internal/infrastructure/persistence.
package progression
