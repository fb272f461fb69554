// Command admin generates the TOTP secret used for admin logins.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pquerna/otp/totp"
)

func main() {
	issuer := flag.String("issuer", "burnrelay", "issuer shown in the authenticator app")
	account := flag.String("account", "admin", "account name shown in the authenticator app")
	flag.Parse()

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      *issuer,
		AccountName: *account,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Set admin.totp_secret in config.yaml (it may reference an env var such as ${ADMIN_TOTP_SECRET}) to:")
	fmt.Println(key.Secret())
	fmt.Println()
	fmt.Println("Provisioning URL for the authenticator app:")
	fmt.Println(key.URL())
}
