// Package acl implements the FIPA-ACL style message envelope exchanged
// between voyagent agents: the performative set, the payload tagged union
// with its performative-compatibility table, the canonical JSON codec, the
// validation pipeline entry point, and the bounded duplicate filter.
//
// An Envelope is a pure value object. It carries no transport knowledge;
// mapping to transport metadata and thread identifiers lives in the
// transport package.
package acl
