// Command kcexplore builds a Kconfig knowledge graph and asks a language
// model which kernel options to change for an optimization target.
package main

func main() {
	Execute()
}
