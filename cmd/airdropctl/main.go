// Command airdropctl administers the credential pool, model catalog and
// result cache directly against the configured KV store.
package main

func main() {
	Execute()
}
