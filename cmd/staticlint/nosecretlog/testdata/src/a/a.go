package a

import (
	"log"

	"go.uber.org/zap"
)

type account struct {
	Email        string
	PasswordHash string
}

func lookupToken() string { return "" }

func logins(sugar *zap.SugaredLogger, plain *zap.Logger, password string, acc account, jwtSecret []byte, err error) {
	sugar.Infow("login", "email", acc.Email)
	sugar.Infow("token issued")
	sugar.Errorw("login failed", zap.Error(err))

	sugar.Infow("login", "password", password)     // want `password must not be logged`
	sugar.Debugln("hash", acc.PasswordHash)        // want `PasswordHash must not be logged`
	log.Printf("secret %s", jwtSecret)             // want `jwtSecret must not be logged`
	plain.Info("login", zap.String("k", password)) // want `password must not be logged`

	log.Println("result", lookupToken())
}
