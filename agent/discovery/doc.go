// Package discovery provides the capability directory: the process-wide,
// explicitly owned store of agent capability profiles.
//
// The directory maps agent names to an AgentCapability (domains, complexity
// level, learned success rate, availability). It is constructed once at
// startup and passed by reference to the router, the learning feedback loop
// and the cross-instance synchronizer.
//
// # Consistency
//
// Reads return copies and writes replace a record wholesale under a write
// lock, so no reader ever sees a partially applied update. Success rates are
// clamped to [0, 1] on every write instead of being rejected.
//
// # Basic Usage
//
//	dir := discovery.NewDirectory(logger)
//	_ = dir.Register(ctx, &discovery.AgentCapability{
//	    Name:            "refactorer",
//	    Domains:         []types.Domain{types.DomainRefactoring},
//	    ComplexityLevel: types.ComplexityMedium,
//	    SuccessRate:     0.9,
//	    Available:       true,
//	})
//
// Subscribers receive change events asynchronously:
//
//	dir.Subscribe(func(e *discovery.Event) { ... })
package discovery
