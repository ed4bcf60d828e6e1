package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	jwttoken "cdigit/internal/jwt_token"
	"cdigit/internal/policy"
	id "cdigit/pkg/domain"
)

var flagTokenActor *cli.StringFlag = &cli.StringFlag{
	Name:     "actor",
	Usage:    "actor id carried in the token",
	Required: true,
}
var flagTokenRole *cli.StringFlag = &cli.StringFlag{
	Name:  "role",
	Value: string(policy.RoleMaker),
	Usage: "role carried in the token: Customer, Maker, Manager or Admin",
}
var flagTokenTTL *cli.DurationFlag = &cli.DurationFlag{
	Name:  "ttl",
	Usage: "token lifetime; defaults to auth.token_ttl",
}

var tokenCommand = &cli.Command{
	Name:  "token",
	Usage: "mint a bearer token for an actor, for development and testing",
	Flags: []cli.Flag{flagTokenActor, flagTokenRole, flagTokenTTL},
	Action: func(cCtx *cli.Context) error {
		cfg, err := loadConfig(cCtx)
		if err != nil {
			return err
		}
		actorID, err := id.ParseActorID(cCtx.String(flagTokenActor.Name))
		if err != nil {
			return err
		}
		role, err := policy.ParseRole(cCtx.String(flagTokenRole.Name))
		if err != nil {
			return err
		}
		ttl := cfg.Auth.TokenTTL
		if cCtx.IsSet(flagTokenTTL.Name) {
			ttl = cCtx.Duration(flagTokenTTL.Name)
		}

		svc := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
		token, err := svc.GenerateActorToken(actorID, role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cCtx.App.Writer, token)
		return nil
	},
}
