// Команда onboardctl - инструменты оператора: шаблоны импорта, импорт файла и миграции.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
