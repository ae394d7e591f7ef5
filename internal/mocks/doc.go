// Package mocks provides shared mock implementations for testing.
//
// # Usage
//
//	import "kcexplore/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    client := mocks.NewMockLLMClient()
//	    client.RespondWithUsage("[SMP increase]", llm.Usage{PromptTokens: 100, CompletionTokens: 5})
//	    session := oracle.NewSession(target, client, env)
//	    // ...
//	}
//
// # Available Mocks
//
//   - MockLLMClient: Mock for the pkg/oracle/llm.LLMClient interface
package mocks
