package usecase

var ToStatRecord = toStatRecord
